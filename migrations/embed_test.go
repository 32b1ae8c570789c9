// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestOrderedEmbedded(t *testing.T) {
	files, err := Ordered()
	if err != nil {
		t.Fatalf("Ordered: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("expected embedded migrations")
	}
	if files[0].Version != 1 || files[0].Name != "0001_create_blobs.sql" {
		t.Fatalf("unexpected first migration %+v", files[0])
	}
	if !strings.Contains(files[0].SQL, "CREATE TABLE IF NOT EXISTS blobs") {
		t.Fatal("expected first migration to create the blobs table")
	}
}

func TestLoadSortsByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0010_later.sql":  {Data: []byte("SELECT 10;")},
		"0002_second.sql": {Data: []byte("SELECT 2;")},
		"README.md":       {Data: []byte("ignored")},
	}

	files, err := load(fsys)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(files))
	}
	if files[0].Version != 2 || files[1].Version != 10 {
		t.Fatalf("expected numeric order 2,10 got %d,%d", files[0].Version, files[1].Version)
	}
}

func TestLoadRejectsBadNames(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"no prefix":         {"create.sql": {Data: []byte("x")}},
		"non numeric":       {"abc_create.sql": {Data: []byte("x")}},
		"duplicate version": {"0001_a.sql": {Data: []byte("x")}, "1_b.sql": {Data: []byte("y")}},
	}

	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := load(fsys); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
