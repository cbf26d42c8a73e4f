package main

import (
	"context"
	"fmt"

	"github.com/easyvinted/publisher/internal/common"
)

func runVersion(ctx context.Context, args []string) int {
	fmt.Printf("EasyVinted version %s\n", common.GetFullVersion())
	return exitOK
}
