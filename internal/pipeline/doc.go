// Package pipeline drives one deployment end to end: resolve secrets,
// build the image, publish it, reconcile infrastructure, cut a new task
// definition revision, roll the service onto it, and verify the public
// endpoint answers.
//
// Stages run strictly in that order and fail fast: the first stage error
// aborts the run, wrapped in a StageError naming the stage. Secret
// resolution runs before the build so a dangling secret reference
// produces no build or publish side effects. The driver itself never
// retries a stage; retry policy belongs to whatever invokes it.
package pipeline
