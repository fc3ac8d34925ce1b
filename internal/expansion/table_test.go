package expansion

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "expansions.yaml")
	content := `expansions:
  apretude:
    - cabotegravir
    - prep inyectable
  aspirina:
    - acido acetilsalicilico
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	table, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", table.Len())
	}

	got := table.Expansions("apretude")
	if len(got) != 2 || got[0] != "cabotegravir" {
		t.Errorf("Expansions(apretude) = %v", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExpansions_CaseInsensitive(t *testing.T) {
	table := FromMap(map[string][]string{"Apretude": {"cabotegravir"}})

	for _, q := range []string{"apretude", "APRETUDE", "  Apretude "} {
		if got := table.Expansions(q); len(got) != 1 {
			t.Errorf("Expansions(%q) = %v, want 1 entry", q, got)
		}
	}
}

func TestExpansions_UnknownTerm(t *testing.T) {
	table := FromMap(map[string][]string{"apretude": {"cabotegravir"}})

	if got := table.Expansions("paracetamol"); got != nil {
		t.Errorf("Expansions(paracetamol) = %v, want nil", got)
	}
}

func TestFromMap_DropsBlankEntries(t *testing.T) {
	table := FromMap(map[string][]string{
		"  ":    {"x"},
		"valid": {" ", ""},
		"ok":    {"uno", " dos "},
	})

	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}
	if got := table.Expansions("ok"); len(got) != 2 || got[1] != "dos" {
		t.Errorf("Expansions(ok) = %v", got)
	}
}

func TestEmpty(t *testing.T) {
	if got := Empty().Expansions("cualquiera"); got != nil {
		t.Errorf("empty table returned %v", got)
	}
}
