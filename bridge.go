package main

import (
	"context"

	"gregoryjjb/eightled/modes"
	"gregoryjjb/eightled/mqtt"
)

// RunnerCommands turns MQTT commands into Runner calls.
func RunnerCommands(runner *Runner) mqtt.CommandHandlerFunc {
	return func(cmd mqtt.Command) error {
		switch cmd.Command {
		case mqtt.CommandStop:
			runner.Stop()
			return nil
		case mqtt.CommandNext:
			_, err := runner.Next()
			return err
		}

		pattern, err := modes.ParsePattern(cmd.Pattern)
		if err != nil {
			return err
		}
		return runner.Start(RunRequest{
			Pattern: pattern,
			DelayMs: cmd.DelayMs,
			Repeat:  cmd.Repeat,
		})
	}
}

// BridgeRunner subscribes bridge to its command topic and forwards runner
// events to it until ctx is done.
func BridgeRunner(ctx context.Context, runner *Runner, bridge *mqtt.Bridge) error {
	if err := bridge.Listen(); err != nil {
		return err
	}

	unsub, ch := runner.Subscribe()
	go func() {
		defer unsub()
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if err := bridge.PublishEvent(ev); err != nil {
					rlog.Warn().Err(err).Msg("Failed to publish event to MQTT")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// StartMQTT connects to the configured broker and bridges it to runner.
func StartMQTT(ctx context.Context, config *Config, runner *Runner) (*mqtt.Bridge, error) {
	mc := config.MQTT()
	client, err := mqtt.NewRealClient(mc.Broker, mc.ClientID)
	if err != nil {
		return nil, err
	}

	bridge := mqtt.NewBridge(client, mc.Topic, RunnerCommands(runner))
	if err := BridgeRunner(ctx, runner, bridge); err != nil {
		bridge.Close()
		return nil, err
	}
	return bridge, nil
}
