package etlstate

import "testing"

func TestValidateIdentifier(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "bare table", in: "metrics"},
		{name: "db.table", in: "default.metrics"},
		{name: "underscores and digits", in: "a_1.b_2"},
		{name: "empty", in: "", wantErr: true},
		{name: "sql injection attempt", in: "default.metrics; DROP TABLE x", wantErr: true},
		{name: "space", in: "default metrics", wantErr: true},
		{name: "three segments", in: "a.b.c", wantErr: true},
		{name: "leading dot", in: ".metrics", wantErr: true},
		{name: "trailing dot", in: "metrics.", wantErr: true},
		{name: "quote", in: "metrics'", wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateIdentifier(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateIdentifier(%q) error=%v wantErr=%v", tc.in, err, tc.wantErr)
			}
		})
	}
}
