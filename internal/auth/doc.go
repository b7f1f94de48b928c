// Package auth provides bearer-token authorisation for the timetabled API.
//
// Tokens are HS256 JWTs minted by "timetabled token" and carry a subject
// and one of two roles:
//   - user: read timetables and edit their events
//   - admin: also create, rename and delete stored timetables and reload
//     the configuration file
//
// Role permissions are a static mapping; there is no user database.
package auth
