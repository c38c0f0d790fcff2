package series

import "github.com/opencom-org/series/pkg/api"

// Block constructors for use with Engine.AddBlock and the Builder.

// ChatBlock returns a block that sends an in-product chat message.
func ChatBlock(body string) Block {
	return api.Block{
		Type: api.BlockChat,
		Config: api.BlockConfig{
			Message: &api.MessageConfig{Body: body},
		},
	}
}

// EmailBlock returns a block that sends an email.
func EmailBlock(subject, body string) Block {
	return api.Block{
		Type: api.BlockEmail,
		Config: api.BlockConfig{
			Message: &api.MessageConfig{Subject: subject, Body: body},
		},
	}
}

// WaitBlock returns a block that suspends the visitor for a duration.
func WaitBlock(amount int, unit WaitUnit) Block {
	return api.Block{
		Type: api.BlockWait,
		Config: api.BlockConfig{
			Wait: &api.WaitConfig{
				WaitType: api.WaitDuration,
				Duration: amount,
				Unit:     unit,
			},
		},
	}
}

// EventWaitBlock returns a block that suspends the visitor until the named
// event fires.
func EventWaitBlock(eventName string) Block {
	return api.Block{
		Type: api.BlockWait,
		Config: api.BlockConfig{
			Wait: &api.WaitConfig{
				WaitType:       api.WaitUntilEvent,
				WaitUntilEvent: eventName,
			},
		},
	}
}
