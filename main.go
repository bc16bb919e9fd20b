package main

import (
	_ "git.handmade.network/hmn/discuss/src/migration"
	"git.handmade.network/hmn/discuss/src/website"
)

func main() {
	website.DiscussCommand.Execute()
}
