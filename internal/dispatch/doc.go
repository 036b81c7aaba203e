// Package dispatch routes a classified prompt to the plugin that should answer it.
//
// The router consults the plugin registry for the candidates registered under
// the classified intent (lowest priority value first, ties in load order) and
// invokes the first one. Every invocation is isolated:
//   - handler errors, panics and non-zero subprocess exits → PluginExecutionFailure
//   - per-plugin timeout (plugins.<name>.timeout, else dispatch.default_timeout) → PluginExecutionFailure
//   - output that is not {"response": string} → MalformedPluginResponse
//   - a plugin-reported {"error": "..."} → PluginExecutionFailure
//   - no candidate for the intent → NoPluginForIntent
//
// A failed turn is not retried against other candidates unless
// dispatch.cascade is set, in which case the remaining candidates are tried in
// order and the last failure is reported if none succeeds.
//
// Turn states are logged as received → routed → succeeded | failed.
package dispatch
