package zipkit

// Platform identifies the "version made by" high byte that tags a
// directory entry's external attributes as one of the recognized layouts.
type Platform uint8

// Platform values recognized by this package, adapted from the
// creatorFAT/creatorUnix/creatorNTFS/creatorVFAT/creatorMacOSX constants in
// the teacher's struct.go.
const (
	PlatformFAT    Platform = 0
	PlatformUnix   Platform = 3
	PlatformNTFS   Platform = 11
	PlatformVFAT   Platform = 14
	PlatformMacOSX Platform = 19
)

// Unix mode bits, carried from the teacher's struct.go s_IF*/s_IS* constants.
const (
	unixIFMT   = 0xf000
	unixIFSOCK = 0xc000
	unixIFLNK  = 0xa000
	unixIFREG  = 0x8000
	unixIFBLK  = 0x6000
	unixIFDIR  = 0x4000
	unixIFCHR  = 0x2000
	unixIFIFO  = 0x1000
	unixISUID  = 0x800
	unixISGID  = 0x400
	unixISVTX  = 0x200

	dosAttrReadOnly = 0x01
	dosAttrHidden   = 0x02
	dosAttrSystem   = 0x04
	dosAttrDir      = 0x10
)

// UnixFileType enumerates the type bits of a UnixAttributes value.
type UnixFileType uint8

const (
	UnixTypeRegular UnixFileType = iota
	UnixTypeDirectory
	UnixTypeSymlink
	UnixTypeCharDevice
	UnixTypeBlockDevice
	UnixTypeFIFO
	UnixTypeSocket
)

// Attributes is the common capability set shared by every platform-specific
// file-attributes variant, per spec.md §4.3's tagged-enum design note.
type Attributes interface {
	IsDirectory() bool
	IsFile() bool
	IsReadOnly() bool

	// SetIsFile sets the directory/regular-file bit. Passing false fails
	// with RangeError: there is no way to "unset" file-ness without
	// choosing some other type, per the spec's fixed (stricter) resolution
	// of the DOS isFile-setter Open Question in spec.md §9.
	SetIsFile(bool) error

	// Platform returns the platform byte this variant was constructed for.
	Platform() Platform

	// Raw returns the 32-bit external-attributes field: DOS attributes in
	// the low byte, UNIX mode in the high 16 bits, per spec.md §4.3.
	Raw() uint32
}

// AttributesFromPlatform constructs the Attributes variant appropriate for
// platform from the raw 32-bit external-attributes field, adapted from the
// teacher's FileHeader.Mode() switch in struct.go. An unrecognized platform
// byte is a hard FormatError.
func AttributesFromPlatform(platform Platform, raw uint32) (Attributes, error) {
	switch platform {
	case PlatformUnix, PlatformMacOSX:
		return &UnixAttributes{platform: platform, mode: uint16(raw >> 16), dosBits: uint8(raw)}, nil
	case PlatformFAT, PlatformNTFS, PlatformVFAT:
		return &DOSAttributes{platform: platform, attrs: uint8(raw)}, nil
	default:
		return nil, formatErrorf("unrecognized platform byte %d", platform)
	}
}

// DOSAttributes is the 8-bit DOS/FAT/NTFS/VFAT attributes variant.
type DOSAttributes struct {
	platform Platform
	attrs    uint8
}

// NewDOSAttributes constructs a DOSAttributes for the FAT platform with no
// bits set (a regular, visible, writable file).
func NewDOSAttributes() *DOSAttributes {
	return &DOSAttributes{platform: PlatformFAT}
}

func (a *DOSAttributes) Platform() Platform { return a.platform }
func (a *DOSAttributes) Raw() uint32         { return uint32(a.attrs) }

func (a *DOSAttributes) IsDirectory() bool { return a.attrs&dosAttrDir != 0 }
func (a *DOSAttributes) IsFile() bool      { return !a.IsDirectory() }
func (a *DOSAttributes) IsReadOnly() bool  { return a.attrs&dosAttrReadOnly != 0 }
func (a *DOSAttributes) IsHidden() bool    { return a.attrs&dosAttrHidden != 0 }
func (a *DOSAttributes) IsSystem() bool    { return a.attrs&dosAttrSystem != 0 }

func (a *DOSAttributes) SetIsHidden(v bool)   { a.setBit(dosAttrHidden, v) }
func (a *DOSAttributes) SetIsSystem(v bool)   { a.setBit(dosAttrSystem, v) }
func (a *DOSAttributes) SetIsReadOnly(v bool) { a.setBit(dosAttrReadOnly, v) }

func (a *DOSAttributes) SetIsFile(v bool) error {
	if !v {
		return &RangeError{Message: "cannot clear isFile on DOSAttributes; set another type instead"}
	}
	a.attrs &^= dosAttrDir
	return nil
}

func (a *DOSAttributes) setBit(bit uint8, v bool) {
	if v {
		a.attrs |= bit
	} else {
		a.attrs &^= bit
	}
}

// SetIsDirectory sets or clears the directory bit directly.
func (a *DOSAttributes) SetIsDirectory(v bool) { a.setBit(dosAttrDir, v) }

// UnixAttributes is the 16-bit UNIX mode variant, carried in the high half
// of the external-attributes field.
type UnixAttributes struct {
	platform Platform
	mode     uint16
	dosBits  uint8
}

// NewUnixAttributes constructs a UnixAttributes defaulting to a regular file
// with permissions 0o644, per spec.md §4.3's "defaults its type to
// regular-file and its permissions to 0o644 whenever assigned a zero or
// type-less value" rule.
func NewUnixAttributes() *UnixAttributes {
	a := &UnixAttributes{platform: PlatformUnix, mode: unixIFREG | 0o644}
	a.syncDOSBits()
	return a
}

func (a *UnixAttributes) Platform() Platform { return a.platform }
func (a *UnixAttributes) Raw() uint32         { return uint32(a.mode)<<16 | uint32(a.dosBits) }

func (a *UnixAttributes) fileType() uint16 { return a.mode & unixIFMT }

func (a *UnixAttributes) normalizeIfZero() {
	if a.fileType() == 0 {
		a.mode |= unixIFREG
	}
	if a.mode&0o777 == 0 && a.fileType() == unixIFREG {
		a.mode |= 0o644
	}
}

func (a *UnixAttributes) IsDirectory() bool { return a.fileType() == unixIFDIR }
func (a *UnixAttributes) IsFile() bool      { return a.fileType() == unixIFREG }
func (a *UnixAttributes) IsReadOnly() bool  { return a.mode&0o200 == 0 }
func (a *UnixAttributes) IsExecutable() bool {
	return a.mode&0o111 != 0
}
func (a *UnixAttributes) IsSymbolicLink() bool { return a.fileType() == unixIFLNK }
func (a *UnixAttributes) Mode() uint16         { return a.mode }
func (a *UnixAttributes) Permissions() uint16  { return a.mode & 0o7777 }
func (a *UnixAttributes) Type() UnixFileType {
	switch a.fileType() {
	case unixIFDIR:
		return UnixTypeDirectory
	case unixIFLNK:
		return UnixTypeSymlink
	case unixIFCHR:
		return UnixTypeCharDevice
	case unixIFBLK:
		return UnixTypeBlockDevice
	case unixIFIFO:
		return UnixTypeFIFO
	case unixIFSOCK:
		return UnixTypeSocket
	default:
		return UnixTypeRegular
	}
}

// SetPermissions replaces the permission bits (low 12 bits), leaving the
// file-type bits untouched.
func (a *UnixAttributes) SetPermissions(perm uint16) {
	a.mode = a.mode&unixIFMT | perm&0o7777
	a.syncDOSBits()
}

// SetType replaces the file-type bits, leaving permissions untouched except
// that a regular file whose permission bits are all zero gets 0o644, per
// spec.md §4.3.
func (a *UnixAttributes) SetType(t UnixFileType) {
	var bits uint16
	switch t {
	case UnixTypeDirectory:
		bits = unixIFDIR
	case UnixTypeSymlink:
		bits = unixIFLNK
	case UnixTypeCharDevice:
		bits = unixIFCHR
	case UnixTypeBlockDevice:
		bits = unixIFBLK
	case UnixTypeFIFO:
		bits = unixIFIFO
	case UnixTypeSocket:
		bits = unixIFSOCK
	default:
		bits = unixIFREG
	}
	a.mode = a.mode&0o7777 | bits
	a.normalizeIfZero()
	a.syncDOSBits()
}

func (a *UnixAttributes) SetIsFile(v bool) error {
	if !v {
		return &RangeError{Message: "cannot clear isFile on UnixAttributes; set another type instead"}
	}
	a.SetType(UnixTypeRegular)
	return nil
}

// syncDOSBits mirrors the teacher's SetMode behavior of also setting
// the low-byte DOS bits alongside a UNIX mode (struct.go's SetMode), so
// archives remain readable by DOS-only tools.
func (a *UnixAttributes) syncDOSBits() {
	var bits uint8
	if a.IsDirectory() {
		bits |= dosAttrDir
	}
	if a.mode&0o200 == 0 {
		bits |= dosAttrReadOnly
	}
	a.dosBits = bits
}
