package state

const schemaSQL = `
CREATE TABLE IF NOT EXISTS module_status (
  module_id TEXT PRIMARY KEY,
  stage TEXT NOT NULL,
  busy_state TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_completions (
  module_id TEXT NOT NULL,
  workflow TEXT NOT NULL,
  completed INTEGER NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (module_id, workflow)
);

CREATE TABLE IF NOT EXISTS chat_messages (
  id TEXT PRIMARY KEY,
  module_id TEXT NOT NULL,
  section TEXT NOT NULL,
  session_id TEXT NOT NULL,
  seq INTEGER NOT NULL,
  role TEXT NOT NULL,
  message_type TEXT NOT NULL,
  content TEXT NOT NULL,
  tool_data TEXT,
  created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_session_seq ON chat_messages(module_id, section, session_id, seq);
`
