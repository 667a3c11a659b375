// Package charging binds the battery "charging enabled" switch to one kernel
// control node and translates between bool and that node's text tokens.
//
// A Control resolves its node once, when it is constructed. Every
// GetEnabled/SetEnabled call then opens, reads or writes, and closes the node.
// No state is cached between calls.
package charging
