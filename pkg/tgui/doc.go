// Package tgui provides small chat UI helpers:
//   - Inline and reply keyboard builders
//   - Callback data helpers (namespace:action:payload)
//   - A message builder with HTML escaping on by default
package tgui
