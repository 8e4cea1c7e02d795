package main

import "budgetdash/internal/ctl"

func main() {
	ctl.Execute()
}
