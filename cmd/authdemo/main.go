// Command authdemo is the OIDC Auth Demo client.
package main

import "oidc-auth-demo/internal/cli"

func main() {
	cli.Execute()
}
