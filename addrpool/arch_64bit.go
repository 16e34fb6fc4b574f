//go:build amd64 || arm64 || loong64 || mips64 || mips64le || ppc64 || ppc64le || riscv64 || s390x

package addrpool

// Supported reports whether the manager is available on this architecture.
const Supported = true
