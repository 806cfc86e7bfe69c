package store

// Answers and reviews carry no foreign key to questions: a deleted question
// leaves its history behind and sessions report the gap.

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  subject_id TEXT NOT NULL,
  topic_id TEXT NOT NULL,
  question_text TEXT NOT NULL,
  passage TEXT,
  passage_id TEXT,
  question_image_url TEXT,
  option_a TEXT NOT NULL,
  option_b TEXT NOT NULL,
  option_c TEXT NOT NULL,
  option_d TEXT NOT NULL,
  option_e TEXT,
  correct_answer TEXT NOT NULL,
  explanation TEXT,
  hint1 TEXT,
  hint2 TEXT,
  hint3 TEXT,
  hint TEXT,
  solution TEXT,
  difficulty TEXT NOT NULL DEFAULT '',
  exam_type TEXT NOT NULL DEFAULT '',
  exam_year INTEGER,
  status TEXT NOT NULL DEFAULT 'draft',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS questions_subject_topic ON questions (subject_id, topic_id, status);

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL DEFAULT 'student',
  status TEXT NOT NULL DEFAULT 'active',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS learning_sessions (
  id TEXT PRIMARY KEY,
  user_id TEXT,
  device_id TEXT NOT NULL DEFAULT '',
  subject_id TEXT NOT NULL,
  topic_id TEXT,
  topic_ids TEXT NOT NULL DEFAULT '[]',
  mode TEXT NOT NULL,
  total_questions INTEGER NOT NULL,
  time_limit_seconds INTEGER,
  status TEXT NOT NULL,
  questions_answered INTEGER NOT NULL DEFAULT 0,
  correct_answers INTEGER NOT NULL DEFAULT 0,
  time_spent_seconds INTEGER NOT NULL DEFAULT 0,
  last_question_index INTEGER NOT NULL DEFAULT 0,
  paused_at INTEGER,
  question_ids TEXT NOT NULL DEFAULT '[]',
  score_percentage REAL,
  started_at INTEGER NOT NULL,
  completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS learning_sessions_user ON learning_sessions (user_id);

CREATE TABLE IF NOT EXISTS session_answers (
  session_id TEXT NOT NULL REFERENCES learning_sessions(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  topic_id TEXT NOT NULL DEFAULT '',
  user_answer TEXT,
  is_correct INTEGER NOT NULL DEFAULT 0,
  time_spent_seconds INTEGER NOT NULL DEFAULT 0,
  hint_used INTEGER NOT NULL DEFAULT 0,
  hint_level INTEGER,
  solution_viewed INTEGER NOT NULL DEFAULT 0,
  solution_viewed_before_attempt INTEGER NOT NULL DEFAULT 0,
  attempt_count INTEGER NOT NULL DEFAULT 1,
  first_attempt_correct INTEGER,
  answered INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (session_id, question_id)
);

CREATE TABLE IF NOT EXISTS question_reviews (
  id TEXT PRIMARY KEY,
  question_id TEXT NOT NULL,
  status TEXT NOT NULL,
  proposed_hint1 TEXT,
  proposed_hint2 TEXT,
  proposed_hint3 TEXT,
  proposed_solution TEXT,
  proposed_explanation TEXT,
  reviewer_id TEXT,
  approver_id TEXT,
  rejection_reason TEXT,
  error TEXT,
  model TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  decided_at INTEGER
);
CREATE INDEX IF NOT EXISTS question_reviews_question ON question_reviews (question_id, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS question_reviews_one_pending ON question_reviews (question_id) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS admin_audit_logs (
  id TEXT PRIMARY KEY,
  admin_id TEXT NOT NULL,
  action TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL DEFAULT '',
  details TEXT,
  ip_address TEXT NOT NULL DEFAULT '',
  user_agent TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS admin_audit_logs_created ON admin_audit_logs (created_at);

CREATE TABLE IF NOT EXISTS guest_counters (
  device_id TEXT PRIMARY KEY,
  answered_count INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS user_goals (
  user_id TEXT PRIMARY KEY,
  current_streak INTEGER NOT NULL DEFAULT 0,
  longest_streak INTEGER NOT NULL DEFAULT 0,
  last_active_date TEXT NOT NULL DEFAULT '',
  daily_date TEXT NOT NULL DEFAULT '',
  daily_answered INTEGER NOT NULL DEFAULT 0,
  daily_target INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS llm_requests (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  model TEXT NOT NULL,
  purpose TEXT NOT NULL,
  input_tokens INTEGER NOT NULL DEFAULT 0,
  output_tokens INTEGER NOT NULL DEFAULT 0,
  latency_ms INTEGER NOT NULL DEFAULT 0,
  success INTEGER NOT NULL,
  error_message TEXT NOT NULL DEFAULT '',
  request_body TEXT NOT NULL DEFAULT '',
  response_body TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  subject_id TEXT NOT NULL,
  topic_id TEXT NOT NULL,
  question_text TEXT NOT NULL,
  passage TEXT,
  passage_id TEXT,
  question_image_url TEXT,
  option_a TEXT NOT NULL,
  option_b TEXT NOT NULL,
  option_c TEXT NOT NULL,
  option_d TEXT NOT NULL,
  option_e TEXT,
  correct_answer TEXT NOT NULL,
  explanation TEXT,
  hint1 TEXT,
  hint2 TEXT,
  hint3 TEXT,
  hint TEXT,
  solution TEXT,
  difficulty TEXT NOT NULL DEFAULT '',
  exam_type TEXT NOT NULL DEFAULT '',
  exam_year INTEGER,
  status TEXT NOT NULL DEFAULT 'draft',
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS questions_subject_topic ON questions (subject_id, topic_id, status);

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL DEFAULT 'student',
  status TEXT NOT NULL DEFAULT 'active',
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS learning_sessions (
  id TEXT PRIMARY KEY,
  user_id TEXT,
  device_id TEXT NOT NULL DEFAULT '',
  subject_id TEXT NOT NULL,
  topic_id TEXT,
  topic_ids TEXT NOT NULL DEFAULT '[]',
  mode TEXT NOT NULL,
  total_questions INTEGER NOT NULL,
  time_limit_seconds INTEGER,
  status TEXT NOT NULL,
  questions_answered INTEGER NOT NULL DEFAULT 0,
  correct_answers INTEGER NOT NULL DEFAULT 0,
  time_spent_seconds INTEGER NOT NULL DEFAULT 0,
  last_question_index INTEGER NOT NULL DEFAULT 0,
  paused_at BIGINT,
  question_ids TEXT NOT NULL DEFAULT '[]',
  score_percentage DOUBLE PRECISION,
  started_at BIGINT NOT NULL,
  completed_at BIGINT
);
CREATE INDEX IF NOT EXISTS learning_sessions_user ON learning_sessions (user_id);

CREATE TABLE IF NOT EXISTS session_answers (
  session_id TEXT NOT NULL REFERENCES learning_sessions(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  topic_id TEXT NOT NULL DEFAULT '',
  user_answer TEXT,
  is_correct BOOLEAN NOT NULL DEFAULT FALSE,
  time_spent_seconds INTEGER NOT NULL DEFAULT 0,
  hint_used BOOLEAN NOT NULL DEFAULT FALSE,
  hint_level INTEGER,
  solution_viewed BOOLEAN NOT NULL DEFAULT FALSE,
  solution_viewed_before_attempt BOOLEAN NOT NULL DEFAULT FALSE,
  attempt_count INTEGER NOT NULL DEFAULT 1,
  first_attempt_correct BOOLEAN,
  answered BOOLEAN NOT NULL DEFAULT FALSE,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL,
  PRIMARY KEY (session_id, question_id)
);

CREATE TABLE IF NOT EXISTS question_reviews (
  id TEXT PRIMARY KEY,
  question_id TEXT NOT NULL,
  status TEXT NOT NULL,
  proposed_hint1 TEXT,
  proposed_hint2 TEXT,
  proposed_hint3 TEXT,
  proposed_solution TEXT,
  proposed_explanation TEXT,
  reviewer_id TEXT,
  approver_id TEXT,
  rejection_reason TEXT,
  error TEXT,
  model TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL,
  decided_at BIGINT
);
CREATE INDEX IF NOT EXISTS question_reviews_question ON question_reviews (question_id, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS question_reviews_one_pending ON question_reviews (question_id) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS admin_audit_logs (
  id TEXT PRIMARY KEY,
  admin_id TEXT NOT NULL,
  action TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL DEFAULT '',
  details TEXT,
  ip_address TEXT NOT NULL DEFAULT '',
  user_agent TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS admin_audit_logs_created ON admin_audit_logs (created_at);

CREATE TABLE IF NOT EXISTS guest_counters (
  device_id TEXT PRIMARY KEY,
  answered_count INTEGER NOT NULL DEFAULT 0,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_goals (
  user_id TEXT PRIMARY KEY,
  current_streak INTEGER NOT NULL DEFAULT 0,
  longest_streak INTEGER NOT NULL DEFAULT 0,
  last_active_date TEXT NOT NULL DEFAULT '',
  daily_date TEXT NOT NULL DEFAULT '',
  daily_answered INTEGER NOT NULL DEFAULT 0,
  daily_target INTEGER NOT NULL DEFAULT 0,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS llm_requests (
  id BIGSERIAL PRIMARY KEY,
  provider TEXT NOT NULL,
  model TEXT NOT NULL,
  purpose TEXT NOT NULL,
  input_tokens INTEGER NOT NULL DEFAULT 0,
  output_tokens INTEGER NOT NULL DEFAULT 0,
  latency_ms BIGINT NOT NULL DEFAULT 0,
  success BOOLEAN NOT NULL,
  error_message TEXT NOT NULL DEFAULT '',
  request_body TEXT NOT NULL DEFAULT '',
  response_body TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);
`
