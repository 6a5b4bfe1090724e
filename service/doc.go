// Package service serves the execution engine over HTTP. Clients post plan
// documents to explain them, run them as a whole or run them step by step
// the way a coordinator drives compute leaves.
package service
