package core

import "testing"

func TestIdentityOf(t *testing.T) {
	cases := map[string]Identity{
		"/plugins/hello_20240115T120000.so":         "hello",
		"/plugins/hello_20240115T120000.so.backup":  "hello",
		"hello_099.so":                              "hello",
		"multi_word_name_v2.so":                      "multi_word_name",
		"notag.so":                                  "notag",
	}

	for path, want := range cases {
		if got := IdentityOf(ArtifactPath(path)); got != want {
			t.Errorf("IdentityOf(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestBackupPathForRoundTrip(t *testing.T) {
	path := ArtifactPath("/plugins/hello_100.so")
	backup := backupPathFor(path)
	if backup != "/plugins/hello_100.so.backup" {
		t.Fatalf("unexpected backup path: %s", backup)
	}
	if stripBackupSuffix(string(backup)) != string(path) {
		t.Fatalf("stripBackupSuffix did not invert backupPathFor")
	}
}

func TestIsBackupName(t *testing.T) {
	if !isBackupName("hello_100.so.backup") {
		t.Fatal("expected backup name to be recognised")
	}
	if isBackupName("hello_100.so") {
		t.Fatal("did not expect live artifact to be recognised as a backup")
	}
}
