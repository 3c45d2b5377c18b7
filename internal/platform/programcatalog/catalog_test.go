package programcatalog

import (
	"strings"
	"testing"

	"github.com/waferline-labs/waferline-go/internal/domain"
)

const validCatalog = `
schema: waferline.programs.v1
families:
  - name: ICL
    segment: client
    stage_types: [class, olb, ppv]
  - name: SPR
    stage_types: [class, maestro]
`

func TestParseValidCatalog(t *testing.T) {
	catalog, err := Parse([]byte(validCatalog))
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	if _, ok := catalog.Family("ICL"); !ok {
		t.Fatalf("expected ICL family")
	}
	if _, ok := catalog.Family("icl"); ok {
		t.Fatalf("family match must be exact")
	}
	if !catalog.AllowsStageType("ICL", domain.StageTypeOlb) {
		t.Fatalf("ICL must allow olb")
	}
	if catalog.AllowsStageType("ICL", domain.StageTypeMaestro) {
		t.Fatalf("ICL must not allow maestro")
	}
	if catalog.AllowsStageType("XXX", domain.StageTypeClass) {
		t.Fatalf("unknown family allows nothing")
	}
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"wrong schema", "schema: other\nfamilies:\n  - name: ICL\n    stage_types: [class]\n"},
		{"no families", "schema: waferline.programs.v1\nfamilies: []\n"},
		{"missing name", "schema: waferline.programs.v1\nfamilies:\n  - stage_types: [class]\n"},
		{"duplicate name", "schema: waferline.programs.v1\nfamilies:\n  - name: ICL\n    stage_types: [class]\n  - name: ICL\n    stage_types: [olb]\n"},
		{"empty stage types", "schema: waferline.programs.v1\nfamilies:\n  - name: ICL\n    stage_types: []\n"},
		{"unknown stage type", "schema: waferline.programs.v1\nfamilies:\n  - name: ICL\n    stage_types: [warp]\n"},
		{"not yaml", "\t{{"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.input)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestValidateNamesTheOffendingEntry(t *testing.T) {
	_, err := Parse([]byte("schema: waferline.programs.v1\nfamilies:\n  - name: ICL\n    stage_types: [warp]\n"))
	if err == nil || !strings.Contains(err.Error(), "families[0]") {
		t.Fatalf("error must name the entry: %v", err)
	}
}
