// Command coinctl provisions and inspects NTAG 424 DNA game coins.
package main

import "github.com/drusifer/globalheadsortails/cmd"

func main() {
	cmd.Execute()
}
