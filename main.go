package main

import (
	"context"

	"lastsold-monitor/cmd"
)

func main() {
	cmd.ExecuteContext(context.Background())
}
