package procwalk

import "testing"

func TestAssistantMatch(t *testing.T) {
	cases := []struct {
		comm string
		want bool
	}{
		{"codex", true},
		{"codex-cli", true},
		{"node", true},
		{"nodejs", false},
		{"bash", false},
		{"zsh", false},
		{"", false},
	}
	for _, c := range cases {
		if got := AssistantMatch(c.comm); got != c.want {
			t.Errorf("AssistantMatch(%q) = %v, want %v", c.comm, got, c.want)
		}
	}
}

func TestFindIn_DirectChild(t *testing.T) {
	byPID := map[int]Process{
		1: {PID: 1, PPID: 0, Comm: "bash"},
		2: {PID: 2, PPID: 1, Comm: "codex"},
	}
	children := map[int][]int{0: {1}, 1: {2}}

	pid, ok := findIn(1, children, byPID, make(map[int]bool))
	if !ok || pid != 2 {
		t.Fatalf("want (2, true), got (%d, %v)", pid, ok)
	}
}

func TestFindIn_Grandchild(t *testing.T) {
	byPID := map[int]Process{
		1: {PID: 1, PPID: 0, Comm: "bash"},
		2: {PID: 2, PPID: 1, Comm: "tmux-shim"},
		3: {PID: 3, PPID: 2, Comm: "node"},
	}
	children := map[int][]int{1: {2}, 2: {3}}

	pid, ok := findIn(1, children, byPID, make(map[int]bool))
	if !ok || pid != 3 {
		t.Fatalf("want (3, true), got (%d, %v)", pid, ok)
	}
}

func TestFindIn_NoMatch(t *testing.T) {
	byPID := map[int]Process{
		1: {PID: 1, PPID: 0, Comm: "bash"},
		2: {PID: 2, PPID: 1, Comm: "vim"},
	}
	children := map[int][]int{1: {2}}

	pid, ok := findIn(1, children, byPID, make(map[int]bool))
	if ok {
		t.Fatalf("want no match, got pid %d", pid)
	}
}

func TestFindIn_CycleDoesNotHang(t *testing.T) {
	byPID := map[int]Process{
		1: {PID: 1, PPID: 2, Comm: "a"},
		2: {PID: 2, PPID: 1, Comm: "b"},
	}
	children := map[int][]int{1: {2}, 2: {1}}

	pid, ok := findIn(1, children, byPID, make(map[int]bool))
	if ok {
		t.Fatalf("want no match on cyclic graph, got pid %d", pid)
	}
}

func TestChildIndex(t *testing.T) {
	procs := []Process{
		{PID: 1, PPID: 0, Comm: "init"},
		{PID: 2, PPID: 1, Comm: "bash"},
		{PID: 3, PPID: 1, Comm: "zsh"},
	}
	idx := childIndex(procs)
	if len(idx[1]) != 2 {
		t.Fatalf("want 2 children of pid 1, got %d", len(idx[1]))
	}
}
