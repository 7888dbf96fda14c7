package main

import (
	"amrsweep"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	generic "go.viam.com/rdk/services/generic"
)

func main() {
	module.ModularMain(
		resource.APIModel{API: generic.API, Model: amrsweep.Controller},
		resource.APIModel{API: sensor.API, Model: amrsweep.ResistanceMeter},
		resource.APIModel{API: sensor.API, Model: amrsweep.SweepSensor},
		resource.APIModel{API: sensor.API, Model: amrsweep.DataSensor},
	)
}
