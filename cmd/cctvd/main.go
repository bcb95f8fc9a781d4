// cmd/cctvd/main.go
package main

func main() {
	Execute()
}
