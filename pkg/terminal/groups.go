package terminal

type commandGroup uint8

const (
	otherCmds commandGroup = iota
	walkCmds
	dataCmds
)

type commandGroupDescription struct {
	description string
	group       commandGroup
}

var commandGroupDescriptions = []commandGroupDescription{
	{"Walking node trees", walkCmds},
	{"Viewing nodes, lists and aliases", dataCmds},
	{"Other commands", otherCmds},
}
