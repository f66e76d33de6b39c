// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package engine

import "github.com/docker/docker/client"

// NewOption represents options to New when creating a new engine client.
type NewOption func(*Client)

// WithAPIClient uses the specified Docker API client instead of creating a new
// one for the socket passed to New.
func WithAPIClient(api client.APIClient) NewOption {
	return func(c *Client) {
		c.api = api
	}
}

// WithVersionFloor sets the minimum engine API version [Client.Check]
// accepts, overriding [MinAPIVersion].
func WithVersionFloor(version string) NewOption {
	return func(c *Client) {
		c.floor = version
	}
}
