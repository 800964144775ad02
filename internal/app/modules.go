package app

import (
	"github.com/vk/mdsweep/internal/stage"
	"github.com/vk/mdsweep/modules/center"
	"github.com/vk/mdsweep/modules/moments"
	"github.com/vk/mdsweep/modules/scale"
	"github.com/vk/mdsweep/modules/stride"
)

// coreModules is the default set of built-in stage modules registered when
// the caller supplies none.
var coreModules = []stage.Module{
	&center.Module{},
	&moments.Module{},
	&scale.Module{},
	&stride.Module{},
}
