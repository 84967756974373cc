// zgpiod attaches to a two-bank GPIO peripheral and exposes it to
// user-level tools through a control channel socket.
package main

import "github.com/tinyrange/zgpio/internal/gpiod"

func main() {
	gpiod.Main()
}
