package types

// Client -> Server
// Play: {}
//
// Pause: {}
//
// Restart: {} // only before reveal
//
// Reveal: {}
//
// SelectWinner:
//   winner_id: string | null // null = "no one scored this round"
//
// NextRound: {}
//
// Abort: {}

// Server -> Client
// Event:
//   event: "stateSnapshot" | "roundChanged" | "playbackStateChanged" |
//          "revealed" | "winnerChanged" | "roundUnavailable" |
//          "sessionCompleted" | "sessionAborted"
//   version: number
//   state:
//     session_id: string
//     phase: "initializing" | "active" | "completed" | "aborted"
//     round_index: number
//     round_count: number
//     round: { id, title, media_ref, duration_sec, revealed } // optional
//     playback: "idle" | "playing" | "paused" | "stopped" | "revealed"
//     progress: number // elapsed fraction in [0,1]
//     winner: string | null // current round's recorded awardee
//     scores: { [participantId]: number }
//     final_winners: string[] // full tie set on sessionCompleted
//     fallback: boolean // round set came from the built-in fallback items
//     abort_reason: string
//
// Error:
//   error: string
