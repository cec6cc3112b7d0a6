package tool

import (
	"strings"
	"testing"
)

func TestNewRegistry_ResolveAndDomains(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(DefaultSpecs())
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}

	spec, ok := r.Resolve("finance", "approve_budget")
	if !ok {
		t.Fatal("Resolve(finance, approve_budget) not found")
	}
	if spec.Class != ClassWrite || !spec.ApprovalClass {
		t.Errorf("approve_budget spec = %+v, want approval-class WRITE", spec)
	}

	if _, ok := r.Resolve("finance", "nonexistent"); ok {
		t.Error("Resolve() found unregistered tool")
	}
	if _, ok := r.Resolve("legal", "list_contracts"); ok {
		t.Error("Resolve() found unregistered domain")
	}

	domains := r.Domains()
	if len(domains) != 3 || domains[0] != "finance" || domains[1] != "hr" || domains[2] != "sales" {
		t.Errorf("Domains() = %v", domains)
	}
	if !r.HasDomain("hr") || r.HasDomain("legal") {
		t.Error("HasDomain() wrong answer")
	}
}

func TestNewRegistry_RejectsBadSpecs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		specs []Spec
		want  string
	}{
		{
			name: "duplicate",
			specs: []Spec{
				{Domain: "hr", Name: "list_employees", Class: ClassRead},
				{Domain: "hr", Name: "list_employees", Class: ClassRead},
			},
			want: "duplicate",
		},
		{
			name:  "invalid class",
			specs: []Spec{{Domain: "hr", Name: "list_employees", Class: "READWRITE"}},
			want:  "invalid class",
		},
		{
			name:  "approval requires write",
			specs: []Spec{{Domain: "hr", Name: "list_time_off", Class: ClassRead, ApprovalClass: true, ApproverRoles: []string{"hr-write"}}},
			want:  "requires WRITE",
		},
		{
			name:  "approval requires approver roles",
			specs: []Spec{{Domain: "hr", Name: "approve_time_off", Class: ClassWrite, ApprovalClass: true}},
			want:  "approver roles",
		},
		{
			name:  "write-named read",
			specs: []Spec{{Domain: "hr", Name: "delete_employee", Class: ClassRead}},
			want:  "name indicates a write",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewRegistry(tc.specs)
			if err == nil {
				t.Fatal("NewRegistry() accepted invalid specs")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestLooksLikeWrite(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]bool{
		"list_employees":  false,
		"get_budget":      false,
		"approve_budget":  true,
		"Submit_Expense":  true,
		"request_timeoff": true,
		"search":          false,
	} {
		if got := LooksLikeWrite(name); got != want {
			t.Errorf("LooksLikeWrite(%q) = %v, want %v", name, got, want)
		}
	}
}
