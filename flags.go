package zipkit

// GeneralFlags is the 16-bit general-purpose bit field carried by the local
// and central directory headers, per spec.md §6.
type GeneralFlags uint16

const (
	flagEncrypted        GeneralFlags = 1 << 0
	flagDataDescriptor   GeneralFlags = 1 << 3
	flagStrongEncryption GeneralFlags = 1 << 6
	flagUTF8             GeneralFlags = 1 << 11
)

// Encrypted reports bit 0. This package only ever observes it on read: any
// archive with it set fails to decompress, since encryption is out of
// scope (spec.md §1 Non-goals).
func (f GeneralFlags) Encrypted() bool { return f&flagEncrypted != 0 }

// HasDataDescriptor reports bit 3: the entry's CRC32 and sizes are zeroed
// in the local header and instead follow the compressed data.
func (f GeneralFlags) HasDataDescriptor() bool { return f&flagDataDescriptor != 0 }

// StrongEncryption reports bit 6, observed read-only like Encrypted.
func (f GeneralFlags) StrongEncryption() bool { return f&flagStrongEncryption != 0 }

// HasUTF8Strings reports bit 11: Name and Comment are UTF-8 rather than the
// legacy code page.
func (f GeneralFlags) HasUTF8Strings() bool { return f&flagUTF8 != 0 }

func (f GeneralFlags) withBit(bit GeneralFlags, v bool) GeneralFlags {
	if v {
		return f | bit
	}
	return f &^ bit
}

// WithDataDescriptor returns f with bit 3 set or cleared.
func (f GeneralFlags) WithDataDescriptor(v bool) GeneralFlags {
	return f.withBit(flagDataDescriptor, v)
}

// WithUTF8Strings returns f with bit 11 set or cleared.
func (f GeneralFlags) WithUTF8Strings(v bool) GeneralFlags {
	return f.withBit(flagUTF8, v)
}
