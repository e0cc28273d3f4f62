package tools

import (
	"testing"
	"time"
)

func TestBuildDefault(t *testing.T) {
	type testArgs2 struct {
		Name   string  `default:"riley2"`
		Age    int32   `default:"6"`
		Money  float64 `default:"50.53"`
		Height uint32  `default:"176"`
	}

	type testArgs struct {
		Name     string        `default:"riley"`
		Age      int32         `default:"5"`
		Money    float64       `default:"50.5"`
		Height   uint32        `default:"175"`
		Values   []int32       `default:"1,2,3,4"`
		Names    []string      `default:"甲,乙,丙"`
		Time     time.Duration `default:"5s"`
		TestArgs *testArgs2
	}

	args := &testArgs{TestArgs: &testArgs2{}}
	if err := BuildDefault(args); err != nil {
		t.Fatalf("build default failed: %v", err)
	}

	if args.Name != "riley" || args.Age != 5 || args.Height != 175 || args.Money != 50.5 {
		t.Fatal("get default value failed")
	}
	if args.TestArgs.Name != "riley2" || args.TestArgs.Age != 6 || args.TestArgs.Height != 176 {
		t.Fatal("get nested default value failed")
	}
	if len(args.Values) != 4 || len(args.Names) != 3 {
		t.Fatal("get slice default value failed")
	}
	if args.Time != 5*time.Second {
		t.Fatalf("duration got %v", args.Time)
	}
}

func TestBuildDefault_KeepsExistingValues(t *testing.T) {
	type testArgs struct {
		Name string `default:"riley"`
		Age  int32  `default:"5"`
	}

	args := &testArgs{Name: "custom"}
	if err := BuildDefault(args); err != nil {
		t.Fatalf("build default failed: %v", err)
	}
	if args.Name != "custom" || args.Age != 5 {
		t.Fatalf("got %+v", args)
	}
}

func TestUnmarshalYamlAndBuildDefault(t *testing.T) {
	type testArgs struct {
		Name string `yaml:"name" default:"riley"`
		Age  int32  `yaml:"age" default:"5"`
	}

	args := &testArgs{}
	if err := UnmarshalYamlAndBuildDefault([]byte("age: 7"), args); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if args.Name != "riley" || args.Age != 7 {
		t.Fatalf("got %+v", args)
	}
}

func TestHash32(t *testing.T) {
	first, second := Hash32("config/sync_rules.json"), Hash32("config/sync_rules.json")
	if first != second {
		t.Fatal("hash is not deterministic")
	}
	if first == Hash32("config/other.json") {
		t.Fatal("different inputs should not collide")
	}
}
