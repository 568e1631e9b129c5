package main

import "github.com/andresmejia3/facedetector/cmd"

func main() {
	cmd.Execute()
}
