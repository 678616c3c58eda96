package config

import (
	"github.com/hashicorp/hcl/v2"
)

// blockSchema lists the top-level blocks of a resocket file. const takes
// no label; socket, server and request blocks are named by theirs.
var blockSchema = []hcl.BlockHeaderSchema{
	{
		Type:       "const",
		LabelNames: []string{},
	},
	{
		Type:       "request",
		LabelNames: []string{"name"},
	},
	{
		Type:       "server",
		LabelNames: []string{"name"},
	},
	{
		Type:       "socket",
		LabelNames: []string{"name"},
	},
}

var configSchema = &hcl.BodySchema{
	Blocks: blockSchema,
}

// processingOrder puts sockets first because a request names the socket it
// is sent over.
var processingOrder = []string{"socket", "server", "request"}
