// Package download drives media downloads from URL to local file.
//
// # Controller
//
// A Controller runs one parse-to-download cycle at a time:
//
//  1. Parse the URL into a media descriptor
//  2. Submit a download task for a chosen kind and format
//  3. Follow the task over the shared progress channel
//  4. Retrieve the finished file by its history id
//  5. Tag audio files and save the thumbnail (optional)
//
// # Basic Usage
//
//	ctrl := download.NewController(download.Options{
//	    Parser:    client,
//	    Submitter: client,
//	    Channel:   channel,
//	    Retriever: download.NewFileRetriever(client, settings),
//	    OnUpdate: func(u download.Update) {
//	        fmt.Println(u.Message)
//	    },
//	})
//	defer ctrl.Close()
//
//	if err := ctrl.Parse(ctx, url); err != nil {
//	    log.Fatal(err)
//	}
//	if err := ctrl.Submit(ctx, model.KindVideo, ""); err != nil {
//	    log.Fatal(err)
//	}
//	snap, err := ctrl.Wait(ctx)
//
// # Progress Tracking
//
// Every change is reported through OnUpdate, in order, as an Update that
// carries a full Snapshot plus an optional Message and Level (Info,
// Verbose, Warning, Error, Success).
//
// # Batches
//
// Batch runs several URLs with one Controller each, at most Limit at a
// time, over a single progress connection.
package download
