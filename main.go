package main

import "daily-album-backend/cmd"

func main() {
	cmd.Run()
}
