// cmd/promptdeck/main.go
package main

import (
	"context"

	"github.com/dalemusser/waffle/app"
	"github.com/promptdeck/promptdeck/internal/app/bootstrap"
)

func main() {
	app.Run(context.Background(), bootstrap.Hooks)
}
