// Package docscan scans a document or ID card from a live camera feed.
//
// # Philosophy
//
// "The frame callback never waits."
//
// The camera delivers a frame every 16-33ms. Everything the frame callback
// does (orientation, geometry, capture) is O(1) and lock-light; everything
// the UI does (render the guide, show the preview, store the image) runs on
// the consumer side and is reached through non-blocking hand-offs.
//
// # Architecture
//
//	camera ──▶ ProcessFrame ─┬─▶ orientation.Resolve   (swap w/h if needed)
//	 (30fps)                 ├─▶ geometry.Engine       (recompute on change)
//	                         ├─▶ capture.Coordinator   (claim armed cycle)
//	                         └─▶ Extractor             (crop + encode, once)
//	                                  │
//	          Mailbox (latest region) │ Outbox (results, failures)
//	                                  ▼
//	                           dispatcher ──▶ OnRegion / OnCapture / OnFailure
//
// # Crop Geometry
//
// Regions are percentages of the oriented frame. Landscape frames get a
// guide 70% wide at (15%, 10%); portrait frames 80% wide at (10%, 20%).
// The height keeps the target aspect ratio, rounded up to a whole percent:
//
//	height = ceil(fraction·width / ratio / height · 100)
//
// Regions that would pass the bottom edge are clamped by default
// (OverflowClamp); OverflowReject keeps the previous region instead.
//
// # Capture Cycle
//
//	Idle ──Arm──▶ Armed ──extract──▶ Captured ──Acknowledge──▶ Idle
//
//   - Arm only succeeds from Idle (a second press is ErrCaptureBusy)
//   - The first frame with a valid region claims the cycle; later frames
//     see the arm flag already cleared
//   - Empty extractions retry on the next frame up to RetryBudget, then a
//     Failure (ErrExtractionFailed) is delivered and the cycle returns to Idle
//   - ArmTimeout fails cycles that never produced a result (ErrArmTimeout)
//   - Acknowledge invalidates anything of the previous cycle still in flight
//
// # Basic Usage
//
//	cropper, _ := extract.NewCropper(extract.Options{Format: "png"})
//	scanner, err := docscan.New(docscan.Options{
//	    Mode:      docscan.ModeIDCard,
//	    Viewport:  docscan.Viewport{Platform: docscan.PlatformSensor, ViewportWidth: 390, ViewportHeight: 844},
//	    Extractor: cropper,
//	    OnRegion:  func(u docscan.RegionUpdate) { overlay.Draw(u) },
//	    OnCapture: func(r docscan.CaptureResult) { preview.Show(r.Image) },
//	})
//	scanner.Start(ctx)
//	defer scanner.Stop()
//
//	for frame := range frames {
//	    scanner.ProcessFrame(frame) // camera goroutine
//	}
//
//	// UI goroutine
//	scanner.Arm()         // shutter pressed
//	scanner.Acknowledge() // preview dismissed / rescan
//
// # Thread Safety
//
//   - ProcessFrame: single producer goroutine
//   - Arm, Acknowledge, SetViewport, Region, State, Stats: any goroutine
//   - Handlers: called from the dispatcher goroutine, one at a time per kind
package docscan
