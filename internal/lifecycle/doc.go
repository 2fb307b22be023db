// Package lifecycle provides the control-file keep-alive used to stop the
// relay agent from outside the process.
//
// The agent creates the control file at startup and keeps running while it
// exists. Deleting the file is the stop request:
//
//	cf := lifecycle.ControlFile{Path: "./controlFile.cf", Interval: 10 * time.Second}
//	if err := cf.Create(); err != nil {
//	    return err
//	}
//	if err := cf.Wait(ctx); err == nil {
//	    // file removed, shut down
//	}
package lifecycle
