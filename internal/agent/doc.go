// Package agent runs the workspace sync engine.
//
// The engine keeps two supervisor streams open, each in its own reconnect
// loop: the ports status stream, whose snapshots feed the port table and the
// exposure dispatcher, and the notification stream, whose requests go to the
// presenter and are answered back to the supervisor.
//
// Example usage:
//
//	engine := agent.NewEngine(client, ports.NewReconciler(), sink, commands, presenter, agent.Options{Bus: bus})
//	if err := engine.Start(ctx); err != nil {
//	    return err
//	}
//	defer engine.Stop(context.Background())
package agent
