// SPDX-License-Identifier: Apache-2.0

package sendpath

import "errors"

// errSTUNOnSendPath is returned when a caller attempts to push a STUN
// message through the option-carrying send path; STUN traffic must use the
// ICE agent's own channel.
var errSTUNOnSendPath = errors.New("sendpath: STUN messages may not use send_with_options")

// ErrNoDestination is returned when the UDP socket layer is asked to send
// before a destination address has been resolved for the session.
var ErrNoDestination = errors.New("sendpath: no destination address resolved for this connection")
