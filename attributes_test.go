package zipkit

import "testing"

func TestUnixAttributesDefaults(t *testing.T) {
	a := NewUnixAttributes()
	if !a.IsFile() {
		t.Errorf("NewUnixAttributes should default to a regular file")
	}
	if a.Permissions() != 0o644 {
		t.Errorf("permissions: got %#o, want 0644", a.Permissions())
	}
	if a.IsReadOnly() {
		t.Errorf("a 0644 file should not be read-only")
	}
}

func TestUnixAttributesSetIsFileFalseFails(t *testing.T) {
	a := NewUnixAttributes()
	if err := a.SetIsFile(false); err == nil {
		t.Fatalf("SetIsFile(false) should fail; there is no way to clear isFile without choosing another type")
	}
}

func TestUnixAttributesSetType(t *testing.T) {
	a := NewUnixAttributes()
	a.SetType(UnixTypeDirectory)
	if !a.IsDirectory() {
		t.Errorf("SetType(Directory) should make IsDirectory true")
	}
	if a.IsFile() {
		t.Errorf("a directory should not also report IsFile")
	}
}

func TestDOSAttributesSetIsFileFalseFails(t *testing.T) {
	a := NewDOSAttributes()
	if err := a.SetIsFile(false); err == nil {
		t.Fatalf("SetIsFile(false) should fail on DOSAttributes too")
	}
}

func TestAttributesFromPlatformUnrecognized(t *testing.T) {
	if _, err := AttributesFromPlatform(Platform(200), 0); err == nil {
		t.Fatalf("expected a FormatError for an unrecognized platform byte")
	}
}

func TestAttributesFromPlatformRoundTrip(t *testing.T) {
	orig := NewUnixAttributes()
	orig.SetType(UnixTypeSymlink)
	orig.SetPermissions(0o777)

	got, err := AttributesFromPlatform(orig.Platform(), orig.Raw())
	if err != nil {
		t.Fatalf("AttributesFromPlatform: %v", err)
	}
	ua, ok := got.(*UnixAttributes)
	if !ok {
		t.Fatalf("got %T, want *UnixAttributes", got)
	}
	if !ua.IsSymbolicLink() {
		t.Errorf("round trip lost the symlink type bit")
	}
	if ua.Permissions() != 0o777 {
		t.Errorf("permissions: got %#o, want 0777", ua.Permissions())
	}
}
