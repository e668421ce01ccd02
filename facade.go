package linker

import (
	"fmt"

	linkercommand "github.com/goliatone/go-linker/command"
)

// Commands bundles the command-bus handlers for hosts that drive the link
// lifecycle through dispatched messages instead of direct service calls.
type Commands struct {
	BeginLink        *linkercommand.BeginLinkCommand
	CompleteCallback *linkercommand.CompleteCallbackCommand
	CompleteLink     *linkercommand.CompleteLinkCommand
	Refresh          *linkercommand.RefreshCommand
	Unlink           *linkercommand.UnlinkCommand
}

type Facade struct {
	service  linkercommand.MutatingService
	commands Commands
}

func NewFacade(service linkercommand.MutatingService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("linker: service is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			BeginLink:        linkercommand.NewBeginLinkCommand(service),
			CompleteCallback: linkercommand.NewCompleteCallbackCommand(service),
			CompleteLink:     linkercommand.NewCompleteLinkCommand(service),
			Refresh:          linkercommand.NewRefreshCommand(service),
			Unlink:           linkercommand.NewUnlinkCommand(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Service() linkercommand.MutatingService {
	if f == nil {
		return nil
	}
	return f.service
}
