package main

import "github.com/JonMunkholm/CrmAssist/cmd"

func main() {
	cmd.Execute()
}
