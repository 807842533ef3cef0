// Command autopilot supervises tmux windows running headless AI coding
// assistants, classifying each window's state and autonomously applying
// recovery actions (approving permissions, nudging past idleness, resuming a
// dropped shell) so a multi-project workflow keeps moving unattended.
package main

func main() {
	Execute()
}
