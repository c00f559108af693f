package main

import (
	brutefir "github.com/atorger/brutefir/src"
)

func main() {
	brutefir.BrutefirMain()
}
