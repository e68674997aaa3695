package rv32

// CSR addresses the core serves. Everything else reads as zero, and
// CSR writes are ignored entirely; trapping policy belongs to an
// external privilege collaborator.
const (
	CsrCycle  = 0xC00 // RDCYCLE: low 32 bits of the cycle counter
	CsrCycleH = 0xC80 // RDCYCLEH: high 32 bits
)

func (c *Core) csrRead(addr uint32) uint32 {
	switch addr {
	case CsrCycle:
		return uint32(c.cycles)
	case CsrCycleH:
		return uint32(c.cycles >> 32)
	default:
		return 0
	}
}
