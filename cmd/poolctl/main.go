// Command poolctl inspects the super-page pool manager's configuration and
// stress-tests it over real address space reservations.
package main

func main() {
	execute()
}
