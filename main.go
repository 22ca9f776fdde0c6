package main

import (
	"oss.terrastruct.com/util-go/xmain"

	"oss.terrastruct.com/tikzjax/tzcli"
)

func main() {
	xmain.Main(tzcli.Run)
}
