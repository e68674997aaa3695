package rv32

// storeMask computes the per-byte write-enable mask for a store of the
// width selected by funct3 at the given byte address. Unaligned half
// and word stores are not defined by RV32I without C; the mask falls
// back to the aligned pattern for the containing half/word.
func storeMask(funct3, addr uint32) uint8 {
	switch funct3 & 3 {
	case funct3Byte:
		return 1 << (addr & 3)
	case funct3Half:
		if addr&2 != 0 {
			return 0xC
		}
		return 0x3
	default:
		return 0xF
	}
}

// storeData positions rs2 on the byte lanes the write mask selects,
// replicating the low byte and half so SB and SH land at any offset.
func storeData(rs2, addr uint32) uint32 {
	b0 := rs2 & 0xFF
	b1 := rs2 >> 8 & 0xFF
	if addr&1 != 0 {
		b1 = b0
	}
	b2 := rs2 >> 16 & 0xFF
	if addr&2 != 0 {
		b2 = b0
	}
	b3 := rs2 >> 24 & 0xFF
	switch {
	case addr&1 != 0:
		b3 = b0
	case addr&2 != 0:
		b3 = rs2 >> 8 & 0xFF
	}
	return b3<<24 | b2<<16 | b1<<8 | b0
}

// loadAlign slices the requested byte/half/word out of the returning
// memory word and sign- or zero-extends it. funct3 bit 2 selects the
// unsigned variants (LBU, LHU).
func loadAlign(word, addr, funct3 uint32) uint32 {
	half := word & 0xFFFF
	if addr&2 != 0 {
		half = word >> 16
	}
	b := half & 0xFF
	if addr&1 != 0 {
		b = half >> 8
	}

	unsigned := funct3&4 != 0
	switch funct3 & 3 {
	case funct3Byte:
		if !unsigned && b&0x80 != 0 {
			return b | 0xFFFFFF00
		}
		return b
	case funct3Half:
		if !unsigned && half&0x8000 != 0 {
			return half | 0xFFFF0000
		}
		return half
	default:
		return word
	}
}
