// Package progress implements the push channel that delivers download
// progress events from the backend.
//
// # Channel
//
// One websocket connection is shared by every subscription. The server
// pushes all events of the authenticated session; the channel routes them
// to handlers by task id.
//
//	ch := progress.New(progress.Options{
//	    URL:     "ws://localhost:8080/api/v1/ws/progress",
//	    Tokens:  store,
//	    Backoff: progress.DefaultBackoff(),
//	})
//	defer ch.Close()
//
//	err := ch.Subscribe(taskID, progress.HandlerFunc(func(ev model.ProgressEvent) {
//	    fmt.Printf("%s %.0f%%\n", ev.Status, ev.Percent)
//	}))
//
// The connection opens on the first Subscribe and closes when the last
// subscription is removed.
//
// # Reconnection
//
// While subscriptions remain, a dropped connection is retried after 1s,
// 2s, 4s, ... capped at 30s. After five consecutive failures the channel
// stops and calls ChannelLost on every remaining handler.
//
// # Payloads
//
// Decode folds numeric (0..3) and textual statuses into model.TaskStatus.
// Payloads that fail to decode are logged and dropped.
package progress
